package orch

// CachedSeqs is the number of keys holding a cached sequence.
func (o *Orchestrator) CachedSeqs() int {
	n := 0
	o.seqs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
