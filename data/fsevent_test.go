package data

import (
	"errors"
	"testing"
)

func TestFsevent_Validate(t *testing.T) {
	id := NewID()

	cases := []struct {
		name  string
		event *Fsevent
		valid bool
	}{
		{"nil event", nil, false},
		{"missing id", &Fsevent{Type: FseventUpsert}, false},
		{"upsert", NewUpsert(id, nil, &Stat{Size: 1}, StatMaskSize, ""), true},
		{"delete", NewDelete(id), true},
		{"link", NewLink(id, nil, NewID(), "name"), true},
		// The root entry is linked under the empty parent with no name.
		{"root link", NewLink(id, nil, EmptyID, ""), true},
		{"unlink", NewUnlink(id, NewID(), "name"), true},
		{"inode xattr", NewXattr(id, nil), true},
		{"namespace xattr", NewNamespaceXattr(id, nil, NewID(), "name"), true},
		{"xattr with parent but no name", &Fsevent{Type: FseventXattr, ID: id, ParentID: NewID()}, false},
		{"xattr with name but no parent", &Fsevent{Type: FseventXattr, ID: id, Name: "n"}, false},
		{"unknown type", &Fsevent{Type: FseventType(9), ID: id}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.valid && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

// TestFsevent_ConstructorsCloneDeltas verifies that the xattr delta map
// is copied, including the nil entries that mean "unset".
func TestFsevent_ConstructorsCloneDeltas(t *testing.T) {
	hot := NewStringValue("hot")
	deltas := map[string]*Value{
		"user.class": &hot,
		"user.gone":  nil,
	}

	event := NewXattr(NewID(), deltas)

	cold := NewStringValue("cold")
	deltas["user.class"] = &cold
	delete(deltas, "user.gone")

	if got := event.Xattrs["user.class"].String(); got != "hot" {
		t.Errorf("Delta mutation leaked into event: %q", got)
	}
	if v, ok := event.Xattrs["user.gone"]; !ok || v != nil {
		t.Errorf("Unset marker should survive as a nil entry")
	}
}
