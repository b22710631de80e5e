package matcher

import (
	"regexp"
	"strings"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/logger"
)

// icIndicators are whole-word markers banks and accountants put in the
// payment reference of intercompany transfers
var icIndicators = []*regexp.Regexp{
	regexp.MustCompile(`\bIC\b`),
	regexp.MustCompile(`\bINTERCOMPANY\b`),
	regexp.MustCompile(`\bINTER-COMPANY\b`),
	regexp.MustCompile(`\bI/C\b`),
}

// IntercompanyDetector classifies transactions whose counterparty is
// another entity of the same group
type IntercompanyDetector struct {
	registry *EntityRegistry
	logger   logger.Logger
}

// NewIntercompanyDetector creates a detector over an immutable registry.
// A nil registry means the built-in group structure.
func NewIntercompanyDetector(registry *EntityRegistry) *IntercompanyDetector {
	if registry == nil {
		registry = DefaultEntityRegistry()
	}
	return &IntercompanyDetector{
		registry: registry,
		logger:   logger.GetGlobalLogger().WithComponent("intercompany_detector"),
	}
}

// Registry returns the registry the detector consults
func (d *IntercompanyDetector) Registry() *EntityRegistry {
	return d.registry
}

// Detect runs the detection methods in order and returns the first hit:
// counterparty name, counterparty account, then payment reference
func (d *IntercompanyDetector) Detect(tx *models.Transaction) models.IntercompanyResult {
	checks := []func(*models.Transaction) (models.IntercompanyResult, bool){
		d.checkCounterpartyName,
		d.checkCounterpartyAccount,
		d.checkPaymentReference,
	}
	for _, check := range checks {
		if result, ok := check(tx); ok {
			d.logger.WithFields(logger.Fields{
				"transaction_id": tx.ID,
				"entity":         result.EntityName,
				"method":         result.Method,
			}).Debug("Intercompany transfer detected")
			return result
		}
	}
	return models.IntercompanyResult{}
}

func (d *IntercompanyDetector) checkCounterpartyName(tx *models.Transaction) (models.IntercompanyResult, bool) {
	counterparty := strings.TrimSpace(tx.CounterpartyName)
	if counterparty == "" {
		return models.IntercompanyResult{}, false
	}

	if entity, ok := d.registry.LookupName(counterparty); ok {
		return detected(entity.Name, entity.ProfileID, models.MethodNameExact, 1.0), true
	}
	if entity, ok := d.registry.SearchName(counterparty); ok {
		return detected(entity.Name, entity.ProfileID, models.MethodNamePattern, 0.9), true
	}
	return models.IntercompanyResult{}, false
}

func (d *IntercompanyDetector) checkCounterpartyAccount(tx *models.Transaction) (models.IntercompanyResult, bool) {
	owner, ok := d.registry.LookupAccount(tx.CounterpartyAccount)
	if !ok {
		return models.IntercompanyResult{}, false
	}
	return detected(owner.EntityName, owner.ProfileID, models.MethodIBAN, 1.0), true
}

func (d *IntercompanyDetector) checkPaymentReference(tx *models.Transaction) (models.IntercompanyResult, bool) {
	if tx.PaymentReference == "" {
		return models.IntercompanyResult{}, false
	}
	ref := strings.ToUpper(tx.PaymentReference)

	for _, indicator := range icIndicators {
		if !indicator.MatchString(ref) {
			continue
		}
		// The indicator alone is weaker evidence than an indicator plus a named entity.
		if entity, ok := d.registry.SearchName(ref); ok {
			return detected(entity.Name, entity.ProfileID, models.MethodReferenceIndic, 0.8), true
		}
		return detected("", 0, models.MethodReferenceIndic, 0.6), true
	}

	if entity, ok := d.registry.SearchName(ref); ok {
		return detected(entity.Name, entity.ProfileID, models.MethodReferenceEntity, 0.85), true
	}
	return models.IntercompanyResult{}, false
}

func detected(name string, profileID int64, method models.DetectionMethod, confidence float64) models.IntercompanyResult {
	return models.IntercompanyResult{
		IsIntercompany: true,
		EntityName:     name,
		ProfileID:      profileID,
		Method:         method,
		Confidence:     confidence,
	}
}

// ICAccountPattern returns the ledger account name used for the current
// account held with entityName, e.g. "1563 Phygrid Ltd - C/A"
func (d *IntercompanyDetector) ICAccountPattern(entityName string) string {
	short := strings.ReplaceAll(entityName, "Limited", "Ltd")
	short = strings.TrimSpace(strings.ReplaceAll(short, ".", ""))
	return "1563 " + short + " - C/A"
}
