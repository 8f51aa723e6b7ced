package notification

import (
	"fmt"

	"github.com/suteetoe/coopregistry/internal/model"
)

// ComplianceStatus is the review outcome of a cooperative's compliance report.
type ComplianceStatus string

const (
	ComplianceApproved         ComplianceStatus = "APPROVED"
	ComplianceRejected         ComplianceStatus = "REJECTED"
	ComplianceRevisionRequired ComplianceStatus = "REVISION_REQUIRED"
)

type template struct {
	title  string
	kind   model.NotificationKind
	format string // args: reference number, cooperative name
}

func (t template) render(number, cooperativeName string) string {
	return fmt.Sprintf(t.format, number, cooperativeName)
}

var applicationTemplates = map[model.ApplicationStatus]template{
	model.StatusApproved: {
		title:  "Application Approved",
		kind:   model.NotificationSuccess,
		format: "Your application %s for %s has been approved. The cooperative is now registered.",
	},
	model.StatusRejected: {
		title:  "Application Rejected",
		kind:   model.NotificationWarning,
		format: "Your application %s for %s has been rejected. See the review for the reason.",
	},
	model.StatusAdditionalInfoRequired: {
		title:  "Additional Information Required",
		kind:   model.NotificationInfo,
		format: "Your application %s for %s needs additional information before it can be reviewed.",
	},
}

var complianceTemplates = map[ComplianceStatus]template{
	ComplianceApproved: {
		title:  "Compliance Report Approved",
		kind:   model.NotificationSuccess,
		format: "Compliance report %s for %s has been approved.",
	},
	ComplianceRejected: {
		title:  "Compliance Report Rejected",
		kind:   model.NotificationWarning,
		format: "Compliance report %s for %s has been rejected.",
	},
	ComplianceRevisionRequired: {
		title:  "Compliance Report Needs Revision",
		kind:   model.NotificationInfo,
		format: "Compliance report %s for %s requires revision and resubmission.",
	},
}
