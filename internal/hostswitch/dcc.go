package hostswitch

import "go-pos-hostswitch/internal/payment"

func (p *FDMS) AuthorizeSaleWithDCCEnquiry(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizeSaleWithDCCEnquiry(tx))
}

func (p *FDMS) AuthorizeSaleWithDCCAllowed(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizeSaleWithDCCAllowed(tx))
}

func (p *FDMS) PerformOfflineWithDCCEnquiry(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.PerformOfflineWithDCCEnquiry(tx))
}

func (p *FDMS) PerformOfflineWithDCCAllowed(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.PerformOfflineWithDCCAllowed(tx))
}

func (p *FDMS) AuthorizePreAuthWithDCCEnquiry(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizePreAuthWithDCCEnquiry(tx))
}

func (p *FDMS) AuthorizePreAuthWithDCCAllowed(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizePreAuthWithDCCAllowed(tx))
}

func (p *FDMS) AuthorizePreAuthCompletionWithDCCEnquiry(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizeCompletionWithDCCEnquiry(tx))
}

func (p *FDMS) AuthorizePreAuthCompletionWithDCCAllowed(tx *payment.Transaction) Status {
	return convert(fdmsResults, p.host.AuthorizeCompletionWithDCCAllowed(tx))
}

// Amex Direct has no conversion service.

func (p *Amex) AuthorizeSaleWithDCCEnquiry(tx *payment.Transaction) Status  { return p.AuthorizeSale(tx) }
func (p *Amex) AuthorizeSaleWithDCCAllowed(tx *payment.Transaction) Status  { return p.AuthorizeSale(tx) }
func (p *Amex) PerformOfflineWithDCCEnquiry(tx *payment.Transaction) Status { return p.PerformOfflineSale(tx) }
func (p *Amex) PerformOfflineWithDCCAllowed(tx *payment.Transaction) Status { return p.PerformOfflineSale(tx) }

func (p *Amex) AuthorizePreAuthWithDCCEnquiry(tx *payment.Transaction) Status {
	return p.AuthorizePreAuth(tx)
}

func (p *Amex) AuthorizePreAuthWithDCCAllowed(tx *payment.Transaction) Status {
	return p.AuthorizePreAuth(tx)
}

func (p *Amex) AuthorizePreAuthCompletionWithDCCEnquiry(tx *payment.Transaction) Status {
	return p.AuthorizePreAuthCompletion(tx)
}

func (p *Amex) AuthorizePreAuthCompletionWithDCCAllowed(tx *payment.Transaction) Status {
	return p.AuthorizePreAuthCompletion(tx)
}

// Nor has Diners Direct.

func (p *Diners) AuthorizeSaleWithDCCEnquiry(tx *payment.Transaction) Status  { return p.AuthorizeSale(tx) }
func (p *Diners) AuthorizeSaleWithDCCAllowed(tx *payment.Transaction) Status  { return p.AuthorizeSale(tx) }
func (p *Diners) PerformOfflineWithDCCEnquiry(tx *payment.Transaction) Status { return p.PerformOfflineSale(tx) }
func (p *Diners) PerformOfflineWithDCCAllowed(tx *payment.Transaction) Status { return p.PerformOfflineSale(tx) }

func (p *Diners) AuthorizePreAuthWithDCCEnquiry(tx *payment.Transaction) Status {
	return p.AuthorizePreAuth(tx)
}

func (p *Diners) AuthorizePreAuthWithDCCAllowed(tx *payment.Transaction) Status {
	return p.AuthorizePreAuth(tx)
}

func (p *Diners) AuthorizePreAuthCompletionWithDCCEnquiry(tx *payment.Transaction) Status {
	return p.AuthorizePreAuthCompletion(tx)
}

func (p *Diners) AuthorizePreAuthCompletionWithDCCAllowed(tx *payment.Transaction) Status {
	return p.AuthorizePreAuthCompletion(tx)
}

func (s *HostSwitch) AuthorizeSaleWithDCCEnquiry(tx *payment.Transaction) Status {
	return s.transaction("sale dcc enquiry", tx, HostProtocol.AuthorizeSaleWithDCCEnquiry)
}

func (s *HostSwitch) AuthorizeSaleWithDCCAllowed(tx *payment.Transaction) Status {
	return s.transaction("sale dcc allowed", tx, HostProtocol.AuthorizeSaleWithDCCAllowed)
}

func (s *HostSwitch) PerformOfflineWithDCCEnquiry(tx *payment.Transaction) Status {
	return s.transaction("offline sale dcc enquiry", tx, HostProtocol.PerformOfflineWithDCCEnquiry)
}

func (s *HostSwitch) PerformOfflineWithDCCAllowed(tx *payment.Transaction) Status {
	return s.transaction("offline sale dcc allowed", tx, HostProtocol.PerformOfflineWithDCCAllowed)
}

func (s *HostSwitch) AuthorizePreAuthWithDCCEnquiry(tx *payment.Transaction) Status {
	return s.transaction("preauth dcc enquiry", tx, HostProtocol.AuthorizePreAuthWithDCCEnquiry)
}

func (s *HostSwitch) AuthorizePreAuthWithDCCAllowed(tx *payment.Transaction) Status {
	return s.transaction("preauth dcc allowed", tx, HostProtocol.AuthorizePreAuthWithDCCAllowed)
}

func (s *HostSwitch) AuthorizePreAuthCompletionWithDCCEnquiry(tx *payment.Transaction) Status {
	return s.transaction("preauth completion dcc enquiry", tx, HostProtocol.AuthorizePreAuthCompletionWithDCCEnquiry)
}

func (s *HostSwitch) AuthorizePreAuthCompletionWithDCCAllowed(tx *payment.Transaction) Status {
	return s.transaction("preauth completion dcc allowed", tx, HostProtocol.AuthorizePreAuthCompletionWithDCCAllowed)
}
