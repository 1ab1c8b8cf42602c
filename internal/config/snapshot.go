package config

import "github.com/roach88/intelstore/internal/ir"

// Snapshot returns the settings recorded with a run. Keys are stable so
// that snapshots of different runs diff cleanly. The busy timeout is a
// store tuning knob and is not part of the snapshot.
func (c *Config) Snapshot() ir.Object {
	return ir.NewObject(
		ir.O("db_path", ir.String(c.DBPath)),
		ir.O("artifacts_dir", ir.String(c.ArtifactsDir)),
		ir.O("log_level", ir.String(c.LogLevel)),
		ir.O("brand", ir.NewObject(
			ir.O("brand_name", ir.String(c.Brand.BrandName)),
			ir.O("promise", ir.String(c.Brand.Promise)),
			ir.O("pillars", ir.Strings(c.Brand.Pillars...)),
			ir.O("forbidden_tactics", ir.Strings(c.Brand.ForbiddenTactics...)),
			ir.O("always_cover_triggers", ir.Strings(c.Brand.AlwaysCoverTriggers...)),
		)),
		ir.O("weights", ir.NewObject(
			ir.O("impact", ir.Int(c.Weights.Impact)),
			ir.O("timeliness", ir.Int(c.Weights.Timeliness)),
			ir.O("virality", ir.Int(c.Weights.Virality)),
			ir.O("relevance", ir.Int(c.Weights.Relevance)),
			ir.O("confidence", ir.Int(c.Weights.Confidence)),
		)),
		ir.O("thresholds", ir.NewObject(
			ir.O("must_cover_score", ir.Int(c.Thresholds.MustCoverScore)),
			ir.O("optional_score", ir.Int(c.Thresholds.OptionalScore)),
			ir.O("watch_score", ir.Int(c.Thresholds.WatchScore)),
			ir.O("min_confidence_promote", ir.Int(c.Thresholds.MinConfidencePromote)),
			ir.O("min_confidence_monitor", ir.Int(c.Thresholds.MinConfidenceMonitor)),
		)),
		ir.O("source_policy", ir.NewObject(
			ir.O("allowed_domains_tier_a", ir.Strings(c.SourcePolicy.AllowedDomainsTierA...)),
		)),
	)
}
