package communicator

import "github.com/paramfabric/communicator/cmn/mono"

// Barrier blocks the calling trainer until the main loop has completed a
// send+recv cycle on its behalf (spec §4.G HalfAsync/Sync): it increments
// barrier_counter, wakes any goroutine waiting in batchesCounter, then
// waits until barrier_counter returns to zero.
func (c *Core) Barrier() {
	start := mono.NanoTime()
	c.mu.Lock()
	c.barrierCounter++
	c.cond.Broadcast()
	for c.barrierCounter != 0 {
		c.cond.Wait()
	}
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.BarrierWaitS.Observe(mono.Since(start).Seconds())
	}
}

// BarrierTriggerReset sets barrier_trigger to n, the number of trainers
// the main loop will wait for before running an iteration.
func (c *Core) BarrierTriggerReset(n int) {
	c.mu.Lock()
	c.barrierTrigger = n
	c.cond.Broadcast()
	c.mu.Unlock()
}

// BarrierTriggerDecrement lowers barrier_trigger by one, used when a
// trainer announces it is leaving the round.
func (c *Core) BarrierTriggerDecrement() {
	c.mu.Lock()
	if c.barrierTrigger > 0 {
		c.barrierTrigger--
	}
	c.cond.Broadcast()
	c.mu.Unlock()
}

// barrierWeakUp stores 0 into barrier_counter and wakes every trainer
// blocked in Barrier() (spec §4.G: "wakes trainers blocked on Barrier()").
func (c *Core) barrierWeakUp() {
	c.mu.Lock()
	c.barrierCounter = 0
	c.cond.Broadcast()
	c.mu.Unlock()
}
