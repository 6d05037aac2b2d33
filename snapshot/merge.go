package snapshot

// mergeReplacements folds resolved pool distributions back into the flat
// holder table (stage 05): every resolved pool is removed and its split is
// accumulated into existing entries. The fold is purely additive, so total
// value is conserved modulo the floor dust already absorbed in stage 04.
func mergeReplacements(normalized Values, replacements Replacements) Values {
	merged := make(Values, len(normalized))
	for holder, value := range normalized {
		merged.Set(holder, value.ToInt())
	}
	for pool, split := range replacements {
		delete(merged, pool)
		for holder, amount := range split {
			merged.Add(holder, amount.ToInt())
		}
	}
	return merged
}
