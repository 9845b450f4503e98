package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"voyage/internal/core"
	"voyage/internal/entitlement"
	"voyage/internal/export"
	"voyage/internal/types"
)

// ExportProfileGetter fetches the profile whose journal is being exported.
type ExportProfileGetter interface {
	GetByID(ctx context.Context, id string) (*types.Profile, error)
}

// ExportVoyageLister fetches the voyages to include in the export.
type ExportVoyageLister interface {
	ListByOwner(ctx context.Context, ownerID string) ([]types.Voyage, error)
}

// JournalRenderer turns a journal document into PDF bytes.
type JournalRenderer interface {
	Render(doc export.JournalDocument) ([]byte, error)
}

// ExportHandler serves the journal PDF export. The export is a boolean-gated
// premium feature: the policy flag alone decides, independent of any counts.
type ExportHandler struct {
	profiles    ExportProfileGetter
	voyages     ExportVoyageLister
	renderer    JournalRenderer
	entitlement EntitlementRefresher
	denials     DenialRecorder
	logger      *slog.Logger
}

// NewExportHandler creates an ExportHandler with the provided dependencies.
func NewExportHandler(
	profiles ExportProfileGetter,
	voyages ExportVoyageLister,
	renderer JournalRenderer,
	ent EntitlementRefresher,
	denials DenialRecorder,
	l *slog.Logger,
) *ExportHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ExportHandler{
		profiles:    profiles,
		voyages:     voyages,
		renderer:    renderer,
		entitlement: ent,
		denials:     denials,
		logger:      l,
	}
}

// RegisterRoutes mounts export routes on the provided chi.Router.
func (h *ExportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/export/journal.pdf", h.ExportJournal)
}

// ExportJournal handles GET /v1/export/journal.pdf.
func (h *ExportHandler) ExportJournal(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	// Premium-gated entry point: re-derive rather than trust the cache.
	ent, err := h.entitlement.Refresh(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	decision := entitlement.CheckQuota(types.ResourceDocumentExport, 0, 0, ent.Policy)
	if !decision.Allowed {
		if h.denials != nil {
			h.denials.RecordQuotaDenial(r.Context(), types.ResourceDocumentExport, ent.Tier)
		}
		core.Error(w, r, quotaError(types.ResourceDocumentExport, decision, ent.Tier))
		return
	}

	profile, err := h.profiles.GetByID(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	voyages, err := h.voyages.ListByOwner(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	voyagePtrs := make([]*types.Voyage, len(voyages))
	for i := range voyages {
		voyagePtrs[i] = &voyages[i]
	}

	pdfBytes, err := h.renderer.Render(export.JournalDocument{
		Profile:     profile,
		Voyages:     voyagePtrs,
		GeneratedAt: time.Now().UTC(),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "journal exported",
		"account_id", accountID,
		"voyages", len(voyages),
		"bytes", len(pdfBytes),
	)

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="travel-journal.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdfBytes)
}
