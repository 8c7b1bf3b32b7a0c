package relationships

import (
	"strings"

	"github.com/reposcout/reposcout/internal/repourl"
	"github.com/reposcout/reposcout/internal/types"
)

// Heuristic inspects one candidate/entry pair and reports a relationship
// signal. Returning ok=false means the heuristic has nothing to say about
// the pair.
type Heuristic interface {
	Name() string
	Detect(candidate *types.CandidateEntry, entry *types.RegistryEntry) (relType types.RelationshipType, confidence float64, ok bool)
}

// ExactURLHeuristic flags a candidate whose normalized URL already exists
// in the registry as a certain duplicate.
type ExactURLHeuristic struct{}

func (h *ExactURLHeuristic) Name() string { return "exact_url" }

func (h *ExactURLHeuristic) Detect(candidate *types.CandidateEntry, entry *types.RegistryEntry) (types.RelationshipType, float64, bool) {
	candURL, err := repourl.Normalize(candidate.RepositoryURL)
	if err != nil {
		return "", 0, false
	}
	entryURL, err := repourl.Normalize(entry.RepositoryURL)
	if err != nil {
		return "", 0, false
	}
	if candURL == entryURL {
		return types.RelDuplicate, 1.0, true
	}
	return "", 0, false
}

// ForkAncestryHeuristic recognizes forks. A candidate whose discovery
// metadata names a parent URL matching an entry is a high-confidence fork;
// a same-named repository under a different owner is a low-confidence one.
type ForkAncestryHeuristic struct{}

func (h *ForkAncestryHeuristic) Name() string { return "fork_ancestry" }

func (h *ForkAncestryHeuristic) Detect(candidate *types.CandidateEntry, entry *types.RegistryEntry) (types.RelationshipType, float64, bool) {
	entryURL, err := repourl.Normalize(entry.RepositoryURL)
	if err != nil {
		return "", 0, false
	}

	if parent := candidate.Metadata["fork_of"]; parent != "" {
		if parentURL, perr := repourl.Normalize(parent); perr == nil && parentURL == entryURL {
			return types.RelFork, 0.95, true
		}
	}

	candURL, err := repourl.Normalize(candidate.RepositoryURL)
	if err != nil || candURL == entryURL {
		return "", 0, false
	}
	if repourl.Name(candURL) == repourl.Name(entryURL) && repourl.Owner(candURL) != repourl.Owner(entryURL) {
		return types.RelFork, 0.4, true
	}
	return "", 0, false
}

// TemplateHeuristic recognizes repositories generated from a template
// entry, either via explicit metadata or a template-flavored entry name.
type TemplateHeuristic struct{}

func (h *TemplateHeuristic) Name() string { return "template" }

var templateMarkers = []string{"template", "starter", "boilerplate", "skeleton", "scaffold"}

func (h *TemplateHeuristic) Detect(candidate *types.CandidateEntry, entry *types.RegistryEntry) (types.RelationshipType, float64, bool) {
	if tmpl := candidate.Metadata["template_source"]; tmpl != "" {
		tmplURL, err := repourl.Normalize(tmpl)
		if err == nil {
			entryURL, eerr := repourl.Normalize(entry.RepositoryURL)
			if eerr == nil && tmplURL == entryURL {
				return types.RelTemplate, 0.9, true
			}
		}
	}

	entryName := strings.ToLower(repourl.Name(entry.RepositoryURL))
	candName := strings.ToLower(repourl.Name(candidate.RepositoryURL))
	for _, marker := range templateMarkers {
		if !strings.Contains(entryName, marker) {
			continue
		}
		base := strings.Trim(strings.ReplaceAll(entryName, marker, ""), "-_.")
		if base != "" && candName != entryName && strings.Contains(candName, base) {
			return types.RelTemplate, 0.55, true
		}
	}
	return "", 0, false
}

// NameSimilarityHeuristic links repositories whose names are near matches
// after separator normalization. It only ever claims a related link, and a
// weak one, so it can never auto-reject anything by itself.
type NameSimilarityHeuristic struct{}

func (h *NameSimilarityHeuristic) Name() string { return "name_similarity" }

func (h *NameSimilarityHeuristic) Detect(candidate *types.CandidateEntry, entry *types.RegistryEntry) (types.RelationshipType, float64, bool) {
	candName := normalizeName(repourl.Name(candidate.RepositoryURL))
	entryName := normalizeName(repourl.Name(entry.RepositoryURL))
	if candName == "" || entryName == "" || candName == entryName {
		return "", 0, false
	}
	if strings.Contains(candName, entryName) || strings.Contains(entryName, candName) {
		return types.RelRelated, 0.45, true
	}
	return "", 0, false
}

// normalizeName lowercases and strips separator noise so "My_Repo" and
// "my-repo" compare equal
func normalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, ".", "")
	return name
}
