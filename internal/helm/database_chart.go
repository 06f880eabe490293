package helm

import (
	"embed"
	"io/fs"
	"strings"

	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
)

//go:embed charts/managed-database
var managedDatabaseChartFS embed.FS

const managedDatabaseChartRoot = "charts/managed-database"

// LoadManagedDatabaseChart loads the embedded StatefulSet/Service/PVC/
// Secret chart spec section 4.5 describes straight out of the binary,
// so InstallOrUpgradeChart never depends on a chart directory existing
// on the host filesystem.
func LoadManagedDatabaseChart() (*chart.Chart, error) {
	var files []*loader.BufferedFile
	err := fs.WalkDir(managedDatabaseChartFS, managedDatabaseChartRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := managedDatabaseChartFS.ReadFile(p)
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(p, managedDatabaseChartRoot+"/")
		files = append(files, &loader.BufferedFile{Name: rel, Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loader.LoadFiles(files)
}
