package manifest

import (
	"fmt"
	"path/filepath"
)

// GEO accessions for the NK cell multimodal dataset.
const (
	// SeriesAccession is the CITE-seq series (gene expression + HTO matrices).
	SeriesAccession = "GSE264696"

	seriesSupplBase = "https://ftp.ncbi.nlm.nih.gov/geo/series/GSE264nnn/" + SeriesAccession + "/suppl/"
	sampleSupplBase = "https://ftp.ncbi.nlm.nih.gov/geo/samples/"
)

// seriesFiles are the supplementary matrices attached directly to the series.
var seriesFiles = []string{
	"GSE264696_730_HTO_GEXbarcodes.tsv.gz",
	"GSE264696_730_HTO_GEXfeatures.tsv.gz",
	"GSE264696_730_HTO_GEXmatrix.mtx.gz",
	"GSE264696_3228_HTO_GEXbarcodes.tsv.gz",
	"GSE264696_3228_HTO_GEXfeatures.tsv.gz",
	"GSE264696_3228_HTO_GEXmatrix.mtx.gz",
}

// adtSamples maps each GSM accession to its sample name. Slice, not map:
// the manifest order must be stable across runs.
var adtSamples = []struct {
	Accession string
	Name      string
}{
	{"GSM8226272", "730_ADT"},
	{"GSM8226274", "3228_ADT"},
}

// adtSuffixes are the three matrix-market parts each ADT sample contributes.
var adtSuffixes = []string{"barcodes.tsv.gz", "features.tsv.gz", "matrix.mtx.gz"}

// Entry maps one remote supplementary file to its local destination.
type Entry struct {
	URL      string
	Filename string
	Path     string
}

// Manifest is the ordered download catalog for one run: series-level
// CITE-seq files first, then the per-sample ADT (protein) files.
type Manifest struct {
	Series  []Entry
	Samples []Entry
}

// Build constructs the manifest for the given data directory. Pure string
// assembly from the accession constants; same dataDir always yields the
// same ordered entries.
func Build(dataDir string) Manifest {
	var m Manifest

	for _, name := range seriesFiles {
		m.Series = append(m.Series, Entry{
			URL:      seriesSupplBase + name,
			Filename: name,
			Path:     filepath.Join(dataDir, name),
		})
	}

	for _, sample := range adtSamples {
		for _, suffix := range adtSuffixes {
			name := fmt.Sprintf("%s_%s%s", sample.Accession, sample.Name, suffix)
			m.Samples = append(m.Samples, Entry{
				URL:      sampleURL(sample.Accession, name),
				Filename: name,
				Path:     filepath.Join(dataDir, name),
			})
		}
	}

	return m
}

// All returns the series entries followed by the sample entries, in
// fetch order.
func (m Manifest) All() []Entry {
	all := make([]Entry, 0, len(m.Series)+len(m.Samples))
	all = append(all, m.Series...)
	return append(all, m.Samples...)
}

// sampleURL builds the per-sample supplementary file URL. GEO groups
// samples by the first seven characters of the accession plus "nnn"
// (GSM8226272 lives under GSM8226nnn/).
func sampleURL(accession, filename string) string {
	return fmt.Sprintf("%s%snnn/%s/suppl/%s", sampleSupplBase, accession[:7], accession, filename)
}
