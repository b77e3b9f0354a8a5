package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/labportal/core/bom"
)

type bomApi struct {
	svc      bom.Service
	validate *validator.Validate
}

func registerBOMAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *bomApi) {
	bg := g.Group("/bom", jwt)

	bg.GET("", api.list)

	// students
	bg.POST("", api.submit, studentMiddleware())
	bg.PUT("/:id", api.studentUpdate, studentMiddleware())
	bg.DELETE("/:id", api.studentDelete, studentMiddleware())

	// guides
	bg.PATCH("", api.guideUpdate, facultyMiddleware())

	// lab incharges
	bg.PATCH("/approve", api.labApprove, labInchargeMiddleware())
	bg.PATCH("/reject", api.labReject, labInchargeMiddleware())
	bg.PATCH("/edit", api.labEdit, labInchargeMiddleware())
}

// Handlers

// list returns the requests visible to the caller's highest approval role.
func (api *bomApi) list(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()

	switch {
	case claims.IsLabIncharge:
		requests, err := api.svc.ListForLab(c)
		if err != nil {
			return err
		}
		return respond(ctx, http.StatusOK, requests)
	case claims.IsFaculty:
		requests, err := api.svc.ListForGuide(c, claims.Subject)
		if err != nil {
			return err
		}
		return respond(ctx, http.StatusOK, requests)
	case claims.IsStudent:
		requests, err := api.svc.ListForStudent(c, claims.Subject)
		if err != nil {
			return err
		}
		return respond(ctx, http.StatusOK, requests)
	}
	return errHttpForbidden
}

func (api *bomApi) submit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data bom.NewRequest
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	r, err := api.svc.Submit(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, r)
}

func (api *bomApi) studentUpdate(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data bom.StudentUpdate
	if err = ctx.Bind(&data); err != nil {
		return err
	}

	r, err := api.svc.StudentUpdate(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, r)
}

func (api *bomApi) studentDelete(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.StudentDelete(ctx.Request().Context(), claims.Subject, ctx.Param("id")); err != nil {
		return err
	}
	return respondMessage(ctx, http.StatusOK, "BOM request deleted")
}

func (api *bomApi) guideUpdate(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data bom.GuideUpdate
	if err = ctx.Bind(&data); err != nil {
		return err
	}

	r, err := api.svc.GuideUpdate(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, r)
}

type labDecisionFunc func(ctx context.Context, actorID string, ld bom.LabDecision) (bom.Request, error)

func (api *bomApi) labApprove(ctx echo.Context) error {
	return api.labDecide(ctx, api.svc.LabApprove)
}

func (api *bomApi) labReject(ctx echo.Context) error {
	return api.labDecide(ctx, api.svc.LabReject)
}

func (api *bomApi) labDecide(ctx echo.Context, decide labDecisionFunc) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data bom.LabDecision
	if err = ctx.Bind(&data); err != nil {
		return err
	}

	r, err := decide(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, r)
}

func (api *bomApi) labEdit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data bom.LabUpdate
	if err = ctx.Bind(&data); err != nil {
		return err
	}

	r, err := api.svc.LabEdit(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, r)
}
