package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
)

// ErrorEnvelope is the body of every non-2xx JSON response:
// {"error":{"message":"...","code":"..."}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	body := APIError{Message: "unknown error", Code: code}
	if err != nil {
		body.Message = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: body})
}

func RespondOK(c *gin.Context, payload any) { c.JSON(http.StatusOK, payload) }

func RespondAccepted(c *gin.Context, payload any) { c.JSON(http.StatusAccepted, payload) }

type aggregateReply struct {
	status   int
	code     string
	// echo sends the aggregate's own message; otherwise fallback is sent.
	echo     bool
	fallback string
}

var aggregateReplies = map[domainagg.ErrorCode]aggregateReply{
	domainagg.CodeValidation:  {status: http.StatusBadRequest, code: "validation", echo: true},
	domainagg.CodeNotFound:    {status: http.StatusNotFound, code: "not_found", echo: true},
	domainagg.CodeConflict:    {status: http.StatusConflict, code: "run_in_progress", echo: true},
	domainagg.CodePersistence: {status: http.StatusInternalServerError, code: "persistence", fallback: "could not save world"},
}

// RespondAggregateError maps aggregate error codes onto HTTP statuses.
// Persistence details are not echoed back to the caller.
func RespondAggregateError(c *gin.Context, err error) {
	var aggErr *domainagg.Error
	if !errors.As(err, &aggErr) {
		RespondError(c, http.StatusInternalServerError, "internal", errors.New("internal error"))
		return
	}
	reply, ok := aggregateReplies[aggErr.Code]
	if !ok {
		reply = aggregateReplies[domainagg.CodePersistence]
	}
	msg := reply.fallback
	if reply.echo {
		msg = aggErr.Message
	}
	RespondError(c, reply.status, reply.code, errors.New(msg))
}
