package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"cardvault-api/pkg/apierror"
	"cardvault-api/pkg/response"
)

// maxBodyBytes caps request bodies. Transfers are the largest payloads.
const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apierror.BadRequest("request body too large")
		case errors.Is(err, io.EOF):
			return apierror.BadRequest("request body is required")
		default:
			return apierror.BadRequest("invalid JSON")
		}
	}
	return nil
}

// writeError sends err to the client. Errors that are not API errors
// are logged here, once.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := apierror.As(err); !ok {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	response.Error(w, err)
}
