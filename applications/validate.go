package applications

import (
	"regexp"
	"strings"
)

// DefaultEmailDomain is the institutional suffix applicants must use.
const DefaultEmailDomain = "mpgi.edu.in"

var (
	emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)
	linkPattern  = regexp.MustCompile(`^https?://\S+`)
)

// Rules configures submission validation.
type Rules struct {
	EmailDomain string
	// Roles lists the selectable roles. Empty accepts any non-blank role.
	Roles []string
}

// DefaultRules returns the rules used by the public form.
func DefaultRules() Rules {
	return Rules{
		EmailDomain: DefaultEmailDomain,
		Roles:       []string{"developer", "designer", "management", "content", "marketing"},
	}
}

// ValidateSubmission checks a submission and returns every failing field.
// A nil result means the submission may be stored.
func ValidateSubmission(s Submission, rules Rules) FieldErrors {
	errs := FieldErrors{}
	domain := strings.TrimPrefix(strings.TrimSpace(rules.EmailDomain), "@")
	if domain == "" {
		domain = DefaultEmailDomain
	}

	if strings.TrimSpace(s.Name) == "" {
		errs["name"] = "Name is required"
	}
	email := strings.TrimSpace(s.Email)
	switch {
	case email == "":
		errs["email"] = "Email is required"
	case !emailPattern.MatchString(email):
		errs["email"] = "Email is invalid"
	case !strings.HasSuffix(email, "@"+domain):
		errs["email"] = "Please use your college email (@" + domain + ")"
	}
	if strings.TrimSpace(s.RollNumber) == "" {
		errs["roll_number"] = "Roll number is required"
	}
	if strings.TrimSpace(s.Skills) == "" {
		errs["skills"] = "Skills are required"
	}
	if link := strings.TrimSpace(s.GithubLink); link != "" && !linkPattern.MatchString(link) {
		errs["github_link"] = "Please enter a valid URL (starting with http:// or https://)"
	}
	if strings.TrimSpace(s.Reason) == "" {
		errs["reason"] = "This field is required"
	}
	role := strings.TrimSpace(s.Role)
	if role == "" {
		errs["role"] = "Please select a role"
	} else if len(rules.Roles) > 0 && !containsFold(rules.Roles, role) {
		errs["role"] = "Please select a valid role"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(strings.TrimSpace(candidate), v) {
			return true
		}
	}
	return false
}

// newApplication builds the record persisted for a valid submission. Status is
// always pending and reviewer fields are empty, whatever the client sent.
func newApplication(s Submission) Application {
	return Application{
		Name:       strings.TrimSpace(s.Name),
		Email:      strings.ToLower(strings.TrimSpace(s.Email)),
		RollNumber: strings.TrimSpace(s.RollNumber),
		Skills:     strings.TrimSpace(s.Skills),
		GithubLink: optionalString(s.GithubLink),
		Reason:     strings.TrimSpace(s.Reason),
		Role:       strings.ToLower(strings.TrimSpace(s.Role)),
		Status:     StatusPending,
	}
}
