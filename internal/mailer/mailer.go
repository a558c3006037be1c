package mailer

// PaymentReceiptTemplate is mailed to the student when a payment settles.
const PaymentReceiptTemplate = "payment_receipt.tmpl"

// Mailer renders templateFile from the embedded templates with data and sends it to recipient.
type Mailer interface {
	Send(recipient, templateFile string, data any) error
}
