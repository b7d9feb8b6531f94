// Package notifications sends push notifications about pipeline milestones
// through ntfy when a topic is configured.
package notifications
