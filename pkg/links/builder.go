package links

import (
	"net/url"
	"strings"
)

// LinkBuilder constructs result-artifact URLs for a task.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type LinkBuilder struct{}

// ArtifactParams identifies one solved task of a job.
type ArtifactParams struct {
	APIURL     string
	JobID      string
	UniprotID  string
	SpaceGroup string
	PackNumber string
}

// ViewerParams defines inputs for the external structure viewer link.
type ViewerParams struct {
	ViewerURL  string
	UniprotID  string
	PackNumber string
	SpaceGroup string
}

// BuildPDB returns the download link for the final PDB model of a task.
func (b LinkBuilder) BuildPDB(p ArtifactParams) string {
	return b.buildArtifact("final_pdb", p)
}

// BuildMTZ returns the download link for the final MTZ map of a task.
func (b LinkBuilder) BuildMTZ(p ArtifactParams) string {
	return b.buildArtifact("final_mtz", p)
}

// BuildViewer returns the viewer link: {viewer}{uniprot}_{pack}_{space group}.
func (b LinkBuilder) BuildViewer(p ViewerParams) string {
	return p.ViewerURL + b.buildTaskName(p.UniprotID, p.PackNumber, p.SpaceGroup)
}

func (b LinkBuilder) buildArtifact(kind string, p ArtifactParams) string {
	return strings.TrimRight(p.APIURL, "/") + "/" + kind + b.buildTaskQuery(p)
}

// buildTaskQuery keeps the parameter order id, uniprot_id, space_group, pack_nb.
// url.Values would sort them.
func (b LinkBuilder) buildTaskQuery(p ArtifactParams) string {
	pairs := [][2]string{
		{"id", p.JobID},
		{"uniprot_id", p.UniprotID},
		{"space_group", p.SpaceGroup},
		{"pack_nb", p.PackNumber},
	}
	parts := make([]string, len(pairs))
	for i, kv := range pairs {
		parts[i] = kv[0] + "=" + url.QueryEscape(kv[1])
	}
	return "?" + strings.Join(parts, "&")
}

func (b LinkBuilder) buildTaskName(uniprotID, packNumber, spaceGroup string) string {
	return url.PathEscape(uniprotID) + "_" + url.PathEscape(packNumber) + "_" + url.PathEscape(spaceGroup)
}
