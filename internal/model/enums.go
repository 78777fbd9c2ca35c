package model

type ContentType string

const (
	ContentTypeGame     ContentType = "game"
	ContentTypeQuest    ContentType = "quest"
	ContentTypeCreative ContentType = "creative"
	ContentTypeExplore  ContentType = "explore"
)

var ContentTypes = []string{
	string(ContentTypeGame), string(ContentTypeQuest),
	string(ContentTypeCreative), string(ContentTypeExplore),
}

type Subject string

const (
	SubjectMath      Subject = "math"
	SubjectPhysics   Subject = "physics"
	SubjectChemistry Subject = "chemistry"
	SubjectLanguage  Subject = "language"
	SubjectCoding    Subject = "coding"
	SubjectGeneral   Subject = "general"
)

var Subjects = []string{
	string(SubjectMath), string(SubjectPhysics), string(SubjectChemistry),
	string(SubjectLanguage), string(SubjectCoding), string(SubjectGeneral),
}

type AlertType string

const (
	AlertTypeCyberbullying        AlertType = "cyberbullying"
	AlertTypeInappropriateContent AlertType = "inappropriate_content"
	AlertTypeExcessiveGaming      AlertType = "excessive_gaming"
	AlertTypeTimeLimit            AlertType = "time_limit"
	AlertTypeSuspiciousActivity   AlertType = "suspicious_activity"
)

var AlertTypes = []string{
	string(AlertTypeCyberbullying), string(AlertTypeInappropriateContent),
	string(AlertTypeExcessiveGaming), string(AlertTypeTimeLimit),
	string(AlertTypeSuspiciousActivity),
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var Severities = []string{
	string(SeverityLow), string(SeverityMedium), string(SeverityHigh), string(SeverityCritical),
}

// AlertSource is open-ended; these are the sources the engine itself emits.
type AlertSource string

const (
	AlertSourceChat          AlertSource = "chat"
	AlertSourceContentFilter AlertSource = "content_filter"
	AlertSourceTimeTracker   AlertSource = "time_tracker"
	AlertSourceGuardian      AlertSource = "guardian_report"
)

type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusResolved  AlertStatus = "resolved"
	AlertStatusDismissed AlertStatus = "dismissed"
)

var AlertStatuses = []string{
	string(AlertStatusActive), string(AlertStatusResolved), string(AlertStatusDismissed),
}

// IsTerminal reports whether no further transition is allowed from s.
func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusResolved || s == AlertStatusDismissed
}

type ContentFilterLevel string

const (
	ContentFilterStrict   ContentFilterLevel = "strict"
	ContentFilterModerate ContentFilterLevel = "moderate"
	ContentFilterRelaxed  ContentFilterLevel = "relaxed"
)

type Role string

const (
	RoleChild    Role = "child"
	RoleParent   Role = "parent"
	RoleEducator Role = "educator"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleChild, RoleParent, RoleEducator, RoleAdmin:
		return true
	}
	return false
}

// IsGuardian reports whether the role can act on behalf of a child.
func (r Role) IsGuardian() bool {
	return r == RoleParent || r == RoleEducator || r == RoleAdmin
}
