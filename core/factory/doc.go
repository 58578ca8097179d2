// Package factory instantiates plugins from configuration. A plugin is named
// by a type string and carries a map of raw settings which its factory decodes
// into a typed struct through the json tags.
//
// Report handlers and metrics sinks register themselves this way:
//
//	reg := factory.NewRegistry[report.Handler]()
//	reg.Register("sqlite", func(conf map[string]any) (report.Handler, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return NewSQLiteHandler(c.Path)
//	})
//	h, err := reg.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "runs.db"}})
package factory
