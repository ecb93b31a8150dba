package manifest

import (
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// ConfigureLogging applies the [log] section to the process-wide commonlog
// backend. An empty file logs to stderr.
func (m *Manifest) ConfigureLogging() {
	var path *string
	if m.Log.File != "" {
		p := m.resolve(m.Log.File)
		path = &p
	}
	commonlog.Configure(m.Log.Verbosity, path)
}
