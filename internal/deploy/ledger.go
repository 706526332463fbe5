package deploy

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/skillmeat/skillmeat/internal/fsio"
	"github.com/skillmeat/skillmeat/internal/types"
)

// LedgerName is the deployment ledger written at each project root. It is
// the project-local projection of the deployments table, consulted by the
// CLI when the database is not reachable.
const LedgerName = ".skillmeat-deployed.toml"

// Ledger mirrors a project's deployment rows on disk.
type Ledger struct {
	Project     string        `toml:"project"`
	UpdatedAt   time.Time     `toml:"updated_at"`
	Deployments []LedgerEntry `toml:"deployments"`
}

// LedgerEntry records one deployed artifact.
type LedgerEntry struct {
	UUID              string    `toml:"uuid"`
	Type              string    `toml:"type"`
	Name              string    `toml:"name"`
	SourceContentHash string    `toml:"source_content_hash"`
	DeployedPath      string    `toml:"deployed_path"` // project-relative, slash-separated
	DeployedAt        time.Time `toml:"deployed_at"`
	ProfileID         string    `toml:"profile_id"`
}

// ReadLedger loads the ledger at projectRoot. A missing file returns an
// empty ledger, not an error.
func ReadLedger(projectRoot string) (*Ledger, error) {
	path := filepath.Join(projectRoot, LedgerName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Ledger{}, nil
	}
	if err != nil {
		return nil, &types.FilesystemError{Op: "read", Path: path, Err: err}
	}

	var l Ledger
	if err := toml.Unmarshal(data, &l); err != nil {
		return nil, &types.ValidationError{Field: LedgerName, Reason: err.Error()}
	}
	return &l, nil
}

// WriteLedger writes the ledger atomically at projectRoot. Entries are
// sorted by (type, name) so rewrites produce stable diffs.
func WriteLedger(projectRoot string, l *Ledger) error {
	sort.Slice(l.Deployments, func(i, j int) bool {
		if l.Deployments[i].Type != l.Deployments[j].Type {
			return l.Deployments[i].Type < l.Deployments[j].Type
		}
		if l.Deployments[i].Name != l.Deployments[j].Name {
			return l.Deployments[i].Name < l.Deployments[j].Name
		}
		return l.Deployments[i].ProfileID < l.Deployments[j].ProfileID
	})
	l.UpdatedAt = time.Now().UTC()

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(l); err != nil {
		return &types.FilesystemError{Op: "encode ledger", Path: projectRoot, Err: err}
	}
	return fsio.WriteFileAtomic(filepath.Join(projectRoot, LedgerName), buf.Bytes(), 0644)
}

// RewriteLedger regenerates a project's ledger from its deployment rows.
func (e *Engine) RewriteLedger(ctx context.Context, project *types.Project) error {
	deps, err := e.store.ListDeploymentsByProject(ctx, project.ID)
	if err != nil {
		return err
	}

	l := &Ledger{Project: project.ID}
	for _, d := range deps {
		a, err := e.store.GetArtifact(ctx, d.ArtifactUUID)
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(project.Path, d.DeployedPath)
		if rerr != nil {
			rel = d.DeployedPath
		}
		l.Deployments = append(l.Deployments, LedgerEntry{
			UUID:              d.ArtifactUUID,
			Type:              string(a.Type),
			Name:              a.Name,
			SourceContentHash: d.SourceContentHash,
			DeployedPath:      filepath.ToSlash(rel),
			DeployedAt:        d.DeployedAt,
			ProfileID:         d.ProfileID,
		})
	}
	return WriteLedger(project.Path, l)
}
