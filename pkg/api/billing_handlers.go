package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/harborgate/orgd/pkg/billing"
	"github.com/harborgate/orgd/pkg/command"
	"github.com/harborgate/orgd/pkg/httputil"
	"github.com/harborgate/orgd/pkg/orgs"
)

func (s *Server) registerBillingRoutes(router *mux.Router) {
	router.HandleFunc("/organizations/{orgID}/billing", s.readBilling).Methods(http.MethodGet)
	router.HandleFunc("/organizations/{orgID}/subscription", s.readSubscription).Methods(http.MethodGet)
	router.HandleFunc("/organizations/{orgID}/payment", s.replacePayment).Methods(http.MethodPut)
	router.HandleFunc("/organizations/{orgID}/subscription/upgrade", s.upgradePlan).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{orgID}/subscription/seats", s.adjustSeats).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{orgID}/subscription/storage", s.adjustStorage).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{orgID}/payment/verify-bank", s.verifyBank).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{orgID}/subscription/cancel", s.cancelSubscription).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{orgID}/subscription/reinstate", s.reinstateSubscription).Methods(http.MethodPost)
	router.HandleFunc("/organizations/{orgID}/tax", s.getTaxInfo).Methods(http.MethodGet)
	router.HandleFunc("/organizations/{orgID}/tax", s.saveTaxInfo).Methods(http.MethodPut)
}

func (s *Server) readBilling(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, &command.Request{Command: command.CmdReadBilling})
}

func (s *Server) readSubscription(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, &command.Request{Command: command.CmdReadSubscription})
}

func (s *Server) replacePayment(w http.ResponseWriter, r *http.Request) {
	var body command.PaymentUpdate
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdReplacePayment, Payment: &body})
}

func (s *Server) upgradePlan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Plan billing.Plan `json:"plan"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdUpgradePlan, Plan: body.Plan})
}

// deltaBody is a signed adjustment to a metered quantity.
type deltaBody struct {
	Delta int `json:"delta"`
}

func (s *Server) adjustSeats(w http.ResponseWriter, r *http.Request) {
	var body deltaBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdAdjustSeats, Delta: body.Delta})
}

func (s *Server) adjustStorage(w http.ResponseWriter, r *http.Request) {
	var body deltaBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdAdjustStorage, Delta: body.Delta})
}

func (s *Server) verifyBank(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount1 int64 `json:"amount1"`
		Amount2 int64 `json:"amount2"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdVerifyBank, Amount1: body.Amount1, Amount2: body.Amount2})
}

func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, &command.Request{Command: command.CmdCancelSubscription})
}

func (s *Server) reinstateSubscription(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, &command.Request{Command: command.CmdReinstateSubscription})
}

func (s *Server) getTaxInfo(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, &command.Request{Command: command.CmdGetTaxInfo})
}

func (s *Server) saveTaxInfo(w http.ResponseWriter, r *http.Request) {
	var body orgs.TaxProfile
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	s.dispatch(w, r, &command.Request{Command: command.CmdSaveTaxInfo, Tax: &body})
}
