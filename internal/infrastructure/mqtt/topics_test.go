package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"State", NewTopics("sane").State(), "sane/state"},
		{"State trailing slash", NewTopics("sane/").State(), "sane/state"},
		{"State nested base", NewTopics("home/office/sane//").State(), "home/office/sane/state"},
		{"Command", NewTopics("sane").Command("list_devices"), "sane/in/list_devices"},
		{"CommandPrefix", NewTopics("sane").CommandPrefix(), "sane/in/"},
		{"AllCommands", NewTopics("sane").AllCommands(), "sane/in/#"},
		{"Devices", NewTopics("sane").Devices(), "sane/devices"},
		{"Device", NewTopics("sane").Device(), "sane/device"},
		{"Base", NewTopics("sane///").Base(), "sane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestTopics_CommandName(t *testing.T) {
	topics := NewTopics("sane")

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"sane/in/list_devices", "list_devices", true},
		{"sane/in/set_device", "set_device", true},
		{"sane/in/a/b", "a/b", true},
		{"sane/in/", "", false},
		{"sane/devices", "", false},
		{"other/in/list_devices", "", false},
		{"sanex/in/list_devices", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := topics.CommandName(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("CommandName(%q) = (%q, %v), want (%q, %v)", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
