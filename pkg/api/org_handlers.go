package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/harborgate/orgd/pkg/command"
	"github.com/harborgate/orgd/pkg/httputil"
	"github.com/harborgate/orgd/pkg/importer"
	"github.com/harborgate/orgd/pkg/license"
	"github.com/harborgate/orgd/pkg/middleware"
	"github.com/harborgate/orgd/pkg/orgs"
)

func (s *Server) registerOrgRoutes(router *mux.Router) {
	router.HandleFunc("/organizations", s.createOrganization).Methods(http.MethodPost)
	router.HandleFunc("/organizations", s.listMyOrganizations).Methods(http.MethodGet)
	router.HandleFunc("/organizations/{orgID}", s.readOrganization).Methods(http.MethodGet)
	router.HandleFunc("/organizations/{orgID}", s.updateOrganization).Methods(http.MethodPut)
	router.HandleFunc("/organizations/{orgID}", s.deleteOrganization).Methods(http.MethodDelete)
	router.HandleFunc("/organizations/{orgID}/leave", s.leaveOrganization).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{orgID}/members/import", s.importMembers).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{orgID}/api-credential", s.issueAPICredential).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{orgID}/api-credential/rotate", s.rotateAPICredential).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{orgID}/keys", s.getOrganizationKeys).Methods(http.MethodGet)
	router.HandleFunc("/organizations/{orgID}/keys", s.setOrganizationKeys).Methods(http.MethodPost)
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var body command.CreateOrganization
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), &command.Request{
		Command: command.CmdCreateOrganization,
		UserID:  middleware.UserID(r.Context()),
		Create:  &body,
	})
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, result)
}

func (s *Server) listMyOrganizations(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, &command.Request{Command: command.CmdListMyOrganizations})
}

func (s *Server) readOrganization(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, &command.Request{Command: command.CmdReadOrganization})
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var body orgs.OrganizationUpdate
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdUpdateOrganization, Update: &body})
}

// credentialBody re-verifies the caller before an irreversible command.
type credentialBody struct {
	Credential string `json:"credential"`
}

func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	var body credentialBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdDeleteOrganization, Credential: body.Credential})
}

func (s *Server) leaveOrganization(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, &command.Request{Command: command.CmdLeaveOrganization})
}

func (s *Server) importMembers(w http.ResponseWriter, r *http.Request) {
	var body importer.Batch
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdImportMembers, Import: &body})
}

func (s *Server) issueAPICredential(w http.ResponseWriter, r *http.Request) {
	var body credentialBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdIssueAPICredential, Credential: body.Credential})
}

func (s *Server) rotateAPICredential(w http.ResponseWriter, r *http.Request) {
	var body credentialBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdRotateAPICredential, Credential: body.Credential})
}

func (s *Server) getOrganizationKeys(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, &command.Request{Command: command.CmdGetOrganizationKeys})
}

func (s *Server) setOrganizationKeys(w http.ResponseWriter, r *http.Request) {
	var body license.KeyPair
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdSetOrganizationKeys, Keys: &body})
}
