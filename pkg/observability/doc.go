/*
Package observability provides lifecycle hooks that report engine activity.

LogHooks writes one structured record per event, so a run can be audited from
the log alone. Combine it with other hooks through domain.LifecycleHooks.Merge.
*/
package observability
