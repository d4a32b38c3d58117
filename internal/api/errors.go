package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// errorBody is the wire shape for every failed tool call on both transports:
// {"error":{"kind":...,"message":...}}.
type errorBody struct {
	Error struct {
		Kind    ppserr.Kind `json:"kind"`
		Message string      `json:"message"`
	} `json:"error"`
}

func writeError(c echo.Context, err error) error {
	pe, ok := ppserr.Of(err)
	var body errorBody
	if !ok {
		body.Error.Kind = ppserr.Internal
		body.Error.Message = err.Error()
		return c.JSON(http.StatusInternalServerError, body)
	}
	body.Error.Kind = pe.Kind
	body.Error.Message = pe.Message
	return c.JSON(pe.Status(), body)
}
