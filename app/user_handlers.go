package n14

import (
	"net/http"

	"github.com/nil071n/N14/core"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// Profile is how a user is shown next to their messages.
type Profile struct {
	Username string `json:"username"`
	Initials string `json:"initials"`
	Color    string `json:"color"`
}

func NewProfile(handle string) Profile {
	return Profile{
		Username: handle,
		Initials: core.Initials(handle),
		Color:    core.ColorClass(handle),
	}
}

func (h *UserHandler) MeHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	return writeJSON(w, http.StatusOK, NewProfile(session.Client.User()))
}

type RosterResponse struct {
	Online  []Profile `json:"online"`
	Offline []Profile `json:"offline"`
}

// RosterHandler lists every registered user split by presence.
func (h *UserHandler) RosterHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	online, offline, err := session.Client.Roster(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, RosterResponse{
		Online:  profiles(online),
		Offline: profiles(offline),
	})
}

func profiles(handles []string) []Profile {
	out := make([]Profile, 0, len(handles))
	for _, h := range handles {
		out = append(out, NewProfile(h))
	}
	return out
}
