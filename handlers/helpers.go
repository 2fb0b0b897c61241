package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/courseloft/teams-api/services"
	"github.com/go-chi/chi/v5"
)

type jsonResponse map[string]interface{}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	js = append(js, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// successResponse writes the callable-operation envelope with
// success=true plus any extra fields.
func successResponse(w http.ResponseWriter, status int, data jsonResponse) {
	env := jsonResponse{"success": true}
	for key, value := range data {
		env[key] = value
	}
	if err := writeJSON(w, status, env); err != nil {
		slog.Error("failed to write JSON response", slog.Any("error", err))
	}
}

func failResponse(w http.ResponseWriter, status int, message string) {
	env := jsonResponse{"success": false, "error": message}
	if err := writeJSON(w, status, env); err != nil {
		slog.Error("failed to write JSON error response", slog.Any("error", err))
	}
}

func badRequestResponse(w http.ResponseWriter, err error) {
	failResponse(w, http.StatusBadRequest, err.Error())
}

func unauthorizedResponse(w http.ResponseWriter, message string) {
	failResponse(w, http.StatusUnauthorized, message)
}

func serverErrorResponse(w http.ResponseWriter, err error) {
	slog.Error("internal server error", slog.Any("error", err))
	failResponse(w, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

// mapServiceErrorToHTTP translates service-layer sentinel errors into
// the failure envelope. Messages stay verbatim so callers can tell
// precondition categories apart.
func mapServiceErrorToHTTP(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrTeamNotFound),
		errors.Is(err, services.ErrMemberNotFound),
		errors.Is(err, services.ErrInviteNotFound),
		errors.Is(err, services.ErrUserNotFound):
		failResponse(w, http.StatusNotFound, err.Error())

	case errors.Is(err, services.ErrOwnerActionForbidden),
		errors.Is(err, services.ErrNotTeamMember):
		failResponse(w, http.StatusForbidden, err.Error())

	case errors.Is(err, services.ErrMemberEmailConflict):
		failResponse(w, http.StatusConflict, err.Error())

	case errors.Is(err, services.ErrSubscriptionInactive),
		errors.Is(err, services.ErrInviteExpired),
		errors.Is(err, services.ErrAlreadyInTeam),
		errors.Is(err, services.ErrNoTeamMembership),
		errors.Is(err, services.ErrOwnerCannotLeave),
		errors.Is(err, services.ErrOwnerCannotBeRemoved),
		errors.Is(err, services.ErrMemberAlreadyRemoved),
		errors.Is(err, services.ErrMemberNotInvited),
		errors.Is(err, services.ErrEmailRequired),
		errors.Is(err, services.ErrEmailInvalid):
		failResponse(w, http.StatusBadRequest, err.Error())

	default:
		serverErrorResponse(w, err)
	}
}

func getIDFromURL(r *http.Request, param string) (int, error) {
	idStr := chi.URLParam(r, param)
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s in URL path", param)
	}
	return id, nil
}
