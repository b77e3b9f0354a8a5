package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/labportal/core"
	"github.com/trezcool/labportal/core/bom"
	"github.com/trezcool/labportal/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")

	errValidation = "validation failed"
	serverError   = "Server Error"
)

// statusCodes maps the domain errors to their HTTP status; their message is safe to return.
var statusCodes = map[error]int{
	bom.ErrNotFound:             http.StatusNotFound,
	bom.ErrStudentNotFound:      http.StatusNotFound,
	user.ErrNotFound:            http.StatusNotFound,
	user.ErrTeamNotFound:        http.StatusNotFound,
	bom.ErrNotAuthorized:        http.StatusForbidden,
	bom.ErrInvalidStatus:        http.StatusBadRequest,
	bom.ErrNoGuideAssigned:      http.StatusBadRequest,
	bom.ErrGuideApprovalPending: http.StatusBadRequest,
	bom.ErrRequestLocked:        http.StatusBadRequest,
}

// Response is the envelope of every API response.
type Response struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func respond(ctx echo.Context, code int, data interface{}) error {
	return ctx.JSON(code, Response{Success: true, Data: data})
}

func respondMessage(ctx echo.Context, code int, msg string) error {
	return ctx.JSON(code, Response{Success: true, Message: msg})
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code := http.StatusInternalServerError
		res := Response{Success: false}

		cause := errors.Cause(err)
		if c, found := statusCodes[cause]; found {
			code = c
			res.Message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					res.Message = "missing or malformed jwt"
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				if msg, ok := origErr.Message.(string); ok {
					res.Message = msg
				} else {
					res.Message = http.StatusText(code)
				}
			case validator.ValidationErrors:
				code = http.StatusBadRequest
				res.Message = errValidation
				res.Errors = make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					res.Errors[vErr.Field()] = vErr.Translate(translator)
				}
			case *core.ValidationError:
				code = http.StatusBadRequest
				res.Message = origErr.Error()
				if len(origErr.Fields) > 0 {
					res.Errors = make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						res.Errors[fErr.Field] = fErr.Error
					}
				}
			default: // any other error is a server error
				res.Message = serverError

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				logger.Error(serverError, errors.Wrap(err, ctx.Request().Method+" "+ctx.Path()), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, res)
			}
			if err != nil {
				logger.Error("sending error response", err)
			}
		}
	}
}
