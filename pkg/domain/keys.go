package domain

// Durable store key names. Every repository addresses storage through these
// constants only; two components sharing a key share its data.
const (
	KeyCustomers        = "customers"
	KeyUsers            = "users"
	KeyEmployees        = "company-employees"
	KeyInvoices         = "invoices"
	KeyExpenses         = "expenses"
	KeyChemicals        = "chemicals"
	KeyMaterials        = "materials"
	KeyTools            = "tools"
	KeyChemicalUsage    = "chemical-usage"
	KeyToolUsage        = "tool-usage"
	KeyChecklists       = "generic-checklists"
	KeyPayrollHistory   = "payroll-history"
	KeyAdminAlerts      = "admin_alerts"
	KeyPackagesLive     = "packagesLive"
	KeyVehicleTypesLive = "vehicleTypesLive"
	KeyVehicleTypes     = "vehicleTypes"
	KeyFAQs             = "faqs"
	KeyContactInfo      = "contactInfo"
	KeyAboutSections    = "aboutSections"
	KeySavedPrices      = "savedPrices"
	KeyBookings         = "bookings"
	KeyTasks            = "tasks"
	KeyCoupons          = "coupons"
	KeyEmailOutbox      = "email-outbox"
	KeyLowInventoryHash = "inventory-low-hash"
)

// Text store keys. They are persisted under TextKeyPrefix.
const (
	TextKeyPrefix          = "local:"
	TextPDFArchive         = "pdfArchive"
	TextCurrentUser        = "currentUser"
	TextCompletedJobs      = "completedJobs"
	TextPayrollAdjustments = "payrollAdjustments"
)

// MetaKeySuffix marks per-table bootstrap metadata records.
const MetaKeySuffix = "::meta"

// MetaKey returns the metadata key for a table.
func MetaKey(table string) string { return table + MetaKeySuffix }

// PriceKey builds the SavedPrices key for an item priced for a vehicle type.
func PriceKey(itemID, vehicleTypeID string) string { return itemID + ":" + vehicleTypeID }
