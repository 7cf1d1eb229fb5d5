package sidecar

// migrationFn transforms a raw sidecar payload from its declared
// schema_version to the next version in the chain. Registered functions
// are applied in order until the payload reaches CurrentSchemaVersion
// (spec.md §4.4.1).
type migrationFn func(map[string]any)

// migrations maps "from version" to the function that advances a payload
// one step forward. The 0.9.0 step applies only to sidecars that carry an
// explicit "0.9.0" tag: a sidecar with no schema_version at all is coerced
// to "1.0.0" by coerceDefaults and never reaches this step. The step fills
// in the fields that were new in 1.0.0.
var migrations = map[string]migrationFn{
	"0.9.0": func(raw map[string]any) {
		if _, ok := raw["notes"]; !ok {
			raw["notes"] = ""
		}
		if _, ok := raw["sequence"]; !ok {
			raw["sequence"] = nil
		}
		raw["schema_version"] = "1.0.0"
	},
}

// migrate applies the migration chain in place until raw's schema_version
// equals CurrentSchemaVersion. A version ahead of CurrentSchemaVersion is an
// error (spec.md: "unknown schema_version higher than the current → error").
func migrate(raw map[string]any) error {
	for {
		version, _ := raw["schema_version"].(string)
		if version == CurrentSchemaVersion {
			return nil
		}
		if compareVersions(version, CurrentSchemaVersion) > 0 {
			return ErrUnknownSchemaVersion
		}
		step, ok := migrations[version]
		if !ok {
			// No registered step from this older version: nothing more this
			// build knows how to do: treat it as already-current rather than
			// looping forever, since compareVersions already proved it's not
			// ahead of us.
			raw["schema_version"] = CurrentSchemaVersion
			return nil
		}
		step(raw)
	}
}
