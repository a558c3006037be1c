package integration_test

const (
	// Student related constants
	TestStudentId      = 1
	TestOtherStudentId = 2
	TestStudentEmail   = "ama.mensah@example.com"

	// Booking related constants, see testdata/bookings_up.sql
	TestPendingBookingId   = 1
	TestConfirmedBookingId = 2
	TestCancelledBookingId = 3
	TestOtherBookingId     = 4
	TestBookingTotal       = "1200.00"

	// Payment related constants
	TestTransactionId     = "A1B2C3D4E5F60718"
	TestVerificationToken = "0F1E2D3C4B5A6978"
	TestUnknownId         = "FFFFFFFFFFFFFFFF"
)
