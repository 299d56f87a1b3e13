package reconcile

import (
	"html"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/livewatch/pkg/links"
	"github.com/kiranshivaraju/livewatch/pkg/models"
)

const noSolution = "No solution"

// popover renders the detail block shown when a task is clicked.
func (r *Reconciler) popover(res models.TaskResult) string {
	var b strings.Builder
	b.WriteString("<dl>")

	if res.Percent <= 0 {
		writeTerm(&b, noSolution)
		b.WriteString("</dl>")
		return b.String()
	}

	writeTerm(&b, "Percent")
	writeDef(&b, formatNumber(res.Percent))
	writeTerm(&b, "Q factor")
	writeDef(&b, formatNumber(res.QFactor))
	writeTerm(&b, "Space group")
	writeDef(&b, res.SpaceGroup)

	if res.FilesAvailable {
		artifact := links.ArtifactParams{
			APIURL:     r.cfg.APIURL,
			JobID:      r.cfg.JobID,
			UniprotID:  res.UniprotID,
			SpaceGroup: res.SpaceGroup,
			PackNumber: res.PackNumber,
		}
		writeTerm(&b, "Files")
		writeLink(&b, r.links.BuildPDB(artifact), "PDB")
		writeLink(&b, r.links.BuildMTZ(artifact), "MTZ")
		writeLink(&b, r.links.BuildViewer(links.ViewerParams{
			ViewerURL:  r.cfg.UglymolURL,
			UniprotID:  res.UniprotID,
			PackNumber: res.PackNumber,
			SpaceGroup: res.SpaceGroup,
		}), "Uglymol (beta)")
	}

	b.WriteString("</dl>")
	return b.String()
}

func writeTerm(b *strings.Builder, term string) {
	b.WriteString("<dt>" + html.EscapeString(term) + "</dt>")
}

func writeDef(b *strings.Builder, def string) {
	b.WriteString("<dd>" + html.EscapeString(def) + "</dd>")
}

func writeLink(b *strings.Builder, href, label string) {
	b.WriteString(`<dd><a href="` + html.EscapeString(href) + `">` + html.EscapeString(label) + "</a></dd>")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
