package payments

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainStopsAtFirstRejection(t *testing.T) {
	var ran []string
	rule := func(name string, rej *Rejection) Rule {
		return NewRule(name, func(Subject) *Rejection {
			ran = append(ran, name)
			return rej
		})
	}
	chain := Chain{
		rule("a", nil),
		rule("b", Reject(ReasonSupplierBlocked)),
		rule("c", Reject(ReasonSupplierDisabled)),
	}

	rej, name := chain.Evaluate(Subject{})
	require.Equal(t, "b", name)
	require.Equal(t, ReasonSupplierBlocked, rej.Code)
	require.Equal(t, []string{"a", "b"}, ran)
}

func TestEmptyChainPasses(t *testing.T) {
	rej, name := Chain{}.Evaluate(Subject{})
	require.Nil(t, rej)
	require.Empty(t, name)
}

func TestGenerationChainOrder(t *testing.T) {
	names := make([]string, 0)
	for _, r := range GenerationChain([]GenerateFilter{GenerateFilterFunc(func(Supplier, Invoice) *Rejection { return nil })}) {
		names = append(names, r.Name())
	}
	require.Equal(t, []string{
		"supplier_exists",
		"supplier_enabled",
		"supplier_not_blocked",
		"supplier_auto_generate",
		"no_draft_instruction",
		"allocate_outstanding",
		"generate_threshold",
		"invoice_not_blocked",
		"company_currency",
		"generate_extension",
	}, names)
}

func TestThresholds(t *testing.T) {
	require.True(t, dec("50").Equal(effectiveThreshold(dec("50"), dec("100"))))
	require.True(t, dec("100").Equal(effectiveThreshold(dec("0"), dec("100"))))

	require.False(t, exceedsThreshold(dec("1000000"), dec("0")))
	require.False(t, exceedsThreshold(dec("100"), dec("100")))
	require.True(t, exceedsThreshold(dec("100.01"), dec("100")))
}

func TestReasonMessages(t *testing.T) {
	for _, code := range []ReasonCode{
		ReasonSupplierNotFound, ReasonSupplierDisabled, ReasonSupplierBlocked,
		ReasonAutoGenerateDisabled, ReasonSupplierDraftExists, ReasonNoOutstandingBalance,
		ReasonGenerateThreshold, ReasonAutoSubmitDisabled, ReasonSubmitThreshold,
		ReasonInvoiceBlocked, ReasonForeignCurrency, ReasonInvoiceDraftExists,
		ReasonInstructionCreateFailure,
	} {
		require.NotEmpty(t, code.Message(), code)
	}
}
