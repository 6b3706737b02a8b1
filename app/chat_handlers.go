package n14

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nil071n/N14/core"
)

const directDescription = "private message"

type ChatHandler struct{}

func NewChatHandler() *ChatHandler {
	return &ChatHandler{}
}

// ThreadResponse is the thread on screen.
type ThreadResponse struct {
	Kind        string         `json:"kind"`
	Name        string         `json:"name"`
	Description string         `json:"desc"`
	Messages    []core.Message `json:"messages"`
}

func newThreadResponse(t core.Thread, msgs []core.Message) ThreadResponse {
	res := ThreadResponse{
		Kind:        t.KindName(),
		Name:        t.Name,
		Description: directDescription,
		Messages:    msgs,
	}
	if t.Kind == core.ChannelThread {
		res.Description = ""
		for _, ch := range core.Channels {
			if ch.Name == t.Name {
				res.Description = ch.Description
			}
		}
	}
	if res.Messages == nil {
		res.Messages = []core.Message{}
	}
	return res
}

func (h *ChatHandler) ChannelsHandler(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, core.Channels)
}

func (h *ChatHandler) OpenChannelHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	msgs, err := session.Client.OpenChannel(r.Context(), r.PathValue("name"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newThreadResponse(session.Client.View(), msgs))
}

// ConversationsHandler lists the user's direct conversations, most recent
// first. The q query parameter filters them by counterpart.
func (h *ChatHandler) ConversationsHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	convs, err := session.Client.Conversations(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, convs)
}

func (h *ChatHandler) OpenDMHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	msgs, err := session.Client.OpenDM(r.Context(), r.PathValue("username"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newThreadResponse(session.Client.View(), msgs))
}

func (h *ChatHandler) ThreadHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	msgs, err := session.Client.Refresh(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newThreadResponse(session.Client.View(), msgs))
}

type SendMessagePayload struct {
	Text string `json:"text"`
}

func (h *ChatHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	var payload SendMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	msg, err := session.Client.Send(r.Context(), payload.Text)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, msg)
}
