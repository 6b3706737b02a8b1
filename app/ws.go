package n14

import "net/http"

// WSHandler opens the change feed of the session. The session middleware
// has already woken a suspended session up.
func (app *App) WSHandler(w http.ResponseWriter, r *http.Request) error {
	session := SessionFromRequest(r)
	if err := app.wsManager.Connect(session.ID, w, r); err != nil {
		app.logger.Error(err.Error())
	}
	return nil
}
