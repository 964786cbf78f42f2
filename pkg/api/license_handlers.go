package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/harborgate/orgd/pkg/command"
	"github.com/harborgate/orgd/pkg/httputil"
	"github.com/harborgate/orgd/pkg/license"
)

func (s *Server) registerLicenseRoutes(router *mux.Router) {
	router.HandleFunc("/organizations/{orgID}/license", s.readLicense).Methods(http.MethodGet)
	router.HandleFunc("/organizations/{orgID}/license/generate", s.generateLicense).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{orgID}/license", s.updateLicense).Methods(http.MethodPut)
}

func (s *Server) readLicense(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, &command.Request{Command: command.CmdReadLicense})
}

func (s *Server) generateLicense(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, &command.Request{Command: command.CmdGenerateLicense})
}

func (s *Server) updateLicense(w http.ResponseWriter, r *http.Request) {
	var body struct {
		License string           `json:"license"`
		Keys    *license.KeyPair `json:"keys,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdUpdateLicense, License: body.License, Keys: body.Keys})
}
