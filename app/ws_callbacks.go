package n14

import (
	"log/slog"

	"github.com/nil071n/N14/core"
)

// onSessionConnect forwards the changes other writers make to the session's
// websocket connections.
func (app *App) onSessionConnect(sid string) {
	client, ok := app.sessions.Client(sid)
	if !ok {
		return
	}
	unwatch := client.Watch(func(c core.Change) {
		app.wsManager.SendTo(core.NewChangedEvent(c), sid)
	})
	if prev, loaded := app.watchers.LoadAndDelete(sid); loaded {
		prev()
	}
	app.watchers.Store(sid, unwatch)
	app.logger.Debug("session connected", slog.String("session", sid))
}

// onSessionDisconnect runs when the last page of the session is gone: the
// user goes offline but stays signed in.
func (app *App) onSessionDisconnect(sid string) {
	if unwatch, ok := app.watchers.LoadAndDelete(sid); ok {
		unwatch()
	}
	if client, ok := app.sessions.Client(sid); ok {
		client.Suspend()
	}
	app.logger.Debug("session disconnected", slog.String("session", sid))
}
