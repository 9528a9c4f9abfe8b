// Package orgid lists the identities an address owns on the source
// registry, enriched with migration status and profile metadata.
package orgid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/windingtree/orgid-migrator/internal/chain"
	"github.com/windingtree/orgid-migrator/internal/content"
	"github.com/windingtree/orgid-migrator/internal/domain"
	"github.com/windingtree/orgid-migrator/internal/status"
)

// placeholderName is shown when an identity's org.json cannot be read.
const placeholderName = "Unnamed organization"

// OwnedDID is one owned identity with its migration state and the
// displayable bits of its published document.
type OwnedDID struct {
	DID   string              `json:"did"`
	State domain.RequestState `json:"state"`
	Name  string              `json:"name"`
	Logo  string              `json:"logo,omitempty"`
}

// Service answers owned-identity listings.
type Service struct {
	source    chain.SourceRegistry
	projector *status.Projector
	resolver  content.Resolver
	logger    *slog.Logger
}

func NewService(source chain.SourceRegistry, projector *status.Projector, resolver content.Resolver, logger *slog.Logger) *Service {
	return &Service{source: source, projector: projector, resolver: resolver, logger: logger}
}

// Owned returns the identities owned by the address, with per-DID
// migration status. Metadata failures degrade to a placeholder so one
// broken org.json cannot hide the rest of the listing.
func (s *Service) Owned(ctx context.Context, owner string) ([]OwnedDID, error) {
	if !common.IsHexAddress(owner) {
		return nil, domain.BadRequest("Invalid owner address: %s", owner)
	}
	addr := common.HexToAddress(owner)

	records, err := s.source.Records(ctx)
	if err != nil {
		return nil, err
	}

	owned := make([]OwnedDID, 0)
	for _, rec := range records {
		if !common.IsHexAddress(rec.Owner) || common.HexToAddress(rec.Owner) != addr {
			continue
		}

		did := fmt.Sprintf("did:orgid:%s", rec.OrgID)

		entry := OwnedDID{DID: did, State: domain.StateReady}
		if st, err := s.projector.Of(ctx, did); err == nil {
			entry.State = st.State
		} else {
			s.logger.Warn("Failed to project status for owned DID",
				slog.String("did", did),
				slog.Any("error", err),
			)
		}

		entry.Name, entry.Logo = s.metadata(ctx, rec)
		owned = append(owned, entry)
	}

	return owned, nil
}

// metadata extracts the display name and logo from the identity's
// org.json, fetching it through the resolver when the snapshot does not
// carry it inline.
func (s *Service) metadata(ctx context.Context, rec chain.OrgIDRecord) (string, string) {
	raw := []byte(rec.OrgJSON)
	if len(raw) == 0 && rec.OrgJSONURI != "" && s.resolver != nil {
		fetched, err := s.resolver.Resolve(ctx, rec.OrgJSONURI)
		if err != nil {
			s.logger.Debug("Failed to resolve org.json",
				slog.String("org_id", rec.OrgID),
				slog.Any("error", err),
			)
			return placeholderName, ""
		}
		raw = fetched
	}
	if len(raw) == 0 {
		return placeholderName, ""
	}

	var doc struct {
		LegalEntity struct {
			LegalName string `json:"legalName"`
		} `json:"legalEntity"`
		OrganizationalUnit struct {
			Name string `json:"name"`
		} `json:"organizationalUnit"`
		Media struct {
			Logo string `json:"logo"`
		} `json:"media"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return placeholderName, ""
	}

	name := doc.LegalEntity.LegalName
	if name == "" {
		name = doc.OrganizationalUnit.Name
	}
	if name == "" {
		name = placeholderName
	}
	return name, doc.Media.Logo
}
