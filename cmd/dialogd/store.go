package main

import "github.com/meteorhacks/dialog"

// newConfiguredStore builds the process-wide Store Registry. DataPath is
// not yet wired to per-table storage_mode defaults (each create_table
// call picks its own mode explicitly), but DatabaseName/DataPath are
// kept on Config for the durable backends future table creation paths
// will default their Path under, mirroring kdbd's own DatabaseName/
// DataPath knobs. TriggerLatenessMs does apply immediately: every table
// created afterwards inherits it unless a future per-table override is
// added to create_table's wire format.
func newConfiguredStore(config *Config) *dialog.Store {
	st := dialog.NewStore()
	st.SetDefaultTriggerLatenessMs(config.TriggerLatenessMs)
	return st
}
