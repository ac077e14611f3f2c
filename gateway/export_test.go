package gateway

// Refreshing reports whether a reissue is in flight.
func (c *Client) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// QueuedWaiters returns how many callers wait on the in-flight reissue.
func (c *Client) QueuedWaiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
