// Copyright (C) 2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/island/pkg/registry/api"
	"github.com/datawire/island/pkg/registry/auth"
	"github.com/datawire/island/pkg/registry/store"
)

// Service is the registry HTTP service.
type Service struct {
	Store    store.Store
	Auth     *auth.Authenticator
	Verifier *Verifier
	// BaseURL is the externally visible URL of this registry, used in
	// registration responses.
	BaseURL string
}

// Handler returns the service's route table.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/island/register", s.handleRegister)
	mux.HandleFunc("GET /v1/island/packages", s.handleListPackages)
	mux.HandleFunc("GET /v1/island/packages/{name}", s.handleGetPackage)
	mux.HandleFunc("GET /v1/island/packages/{name}/versions", s.handleListVersions)
	mux.HandleFunc("GET /v1/island/packages/{name}/{version}", s.handleGetVersion)
	mux.HandleFunc("GET /v1/island/packages/{name}/{version}/download", s.handleDownloadBestMatch)
	mux.HandleFunc("GET /v1/island/packages/{name}/{version}/download/{filename}", s.handleDownloadExact)
	mux.HandleFunc("DELETE /v1/island/packages/{name}/{version}/yank", s.handleYank)
	mux.HandleFunc("GET /v1/island/packages/{name}/collaborators", s.handleListCollaborators)
	mux.HandleFunc("POST /v1/island/packages/{name}/collaborators", s.handleAddCollaborator)
	mux.HandleFunc("DELETE /v1/island/packages/{name}/collaborators/{id}", s.handleRemoveCollaborator)
	mux.HandleFunc("GET /v1/island/search", s.handleSearch)
	mux.HandleFunc("GET /v1/island/index.json", s.handleIndex)
	return mux
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		dlog.Errorf(ctx, "write response: %v", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	apiErr := api.AsError(err)
	if apiErr.Code == api.CodeInternalError {
		dlog.Errorf(ctx, "internal error: %v", err)
	}
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	writeJSON(ctx, w, apiErr.Code.HTTPStatus(), api.ErrorEnvelope{Error: apiErr})
}

// authenticate resolves the request's credentials, mapping auth errors
// to 401.
func (s *Service) authenticate(r *http.Request) (*auth.Subject, error) {
	subject, err := s.Auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		return nil, api.Errorf(api.CodeUnauthorized, "authentication required")
	}
	return subject, nil
}

// requireScope enforces a named token scope.
func requireScope(subject *auth.Subject, scope string) error {
	if !subject.HasScope(scope) {
		return api.Errorf(api.CodeForbidden, "token lacks the %q scope", scope)
	}
	return nil
}
