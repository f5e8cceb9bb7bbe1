// Package aggregates implements the world aggregate on GORM.
//
// Every write runs in one transaction. Changes are published to the
// notifier only after the transaction commits.
package aggregates
