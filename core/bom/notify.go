package bom

import (
	"fmt"
	"net/mail"

	"github.com/trezcool/labportal/core"
	"github.com/trezcool/labportal/core/user"
)

const (
	submittedTemplate = "bom_request_submitted"
	decidedTemplate   = "bom_request_decided"
)

type (
	submittedData struct {
		Guide    user.Summary
		Student  user.Summary
		TeamName string
		Request  Request
	}

	decidedData struct {
		Student  user.Summary
		Request  Request
		Approved bool
		Reason   string
	}
)

func newGuideNotification(guide, student user.User, teamName string, r Request) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: guide.Name, Address: guide.Email}},
		Subject:      fmt.Sprintf("New BOM request from %s: %s", student.Name, r.PartName),
		TemplateName: submittedTemplate,
		TemplateData: submittedData{
			Guide:    guide.Summary(),
			Student:  student.Summary(),
			TeamName: teamName,
			Request:  r,
		},
	}
}

func newStudentNotification(student user.User, r Request, status Status, reason string) *core.EmailMessage {
	approved := status == StatusApproved
	return &core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      fmt.Sprintf("Your BOM request for %s was %s", r.PartName, status),
		TemplateName: decidedTemplate,
		TemplateData: decidedData{
			Student:  student.Summary(),
			Request:  r,
			Approved: approved,
			Reason:   reason,
		},
	}
}
