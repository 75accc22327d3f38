package domain

import (
	"fmt"
	"strings"
)

// PropertySpec describes one property an email template accepts.
type PropertySpec struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// EmailTemplate describes a provider-side transactional email template and the
// contact/custom properties a send must supply.
type EmailTemplate struct {
	Name              string
	TemplateID        string
	From              string
	CC                []string
	BCC               []string
	ContactProperties []PropertySpec
	CustomProperties  []PropertySpec
}

func (t *EmailTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: template name is required", ErrValidation)
	}
	if strings.TrimSpace(t.TemplateID) == "" {
		return fmt.Errorf("%w: provider template id is required", ErrValidation)
	}
	if strings.TrimSpace(t.From) == "" {
		return fmt.Errorf("%w: from address is required", ErrValidation)
	}
	return nil
}
