/*
Package escrow implements quorum gated custody of funds.

An escrow locks a single-coin payment from a source under a derived
account. Two or three approvers are configured at creation; distinct
pairs must both agree, three distinct approvers form a two-of-three
quorum, and listing the same address twice leaves a single approver
who decides alone.
Once enough approvals are collected the funds move to the beneficiary.
Until the first approval arrives the source may cancel and take the
deposit back.

Escrows are kept forever and can be looked up by ID, or through the
source, beneficiary and approver indexes. A released escrow stays
listed in those indexes, a cancelled one is dropped from them.
*/
package escrow
