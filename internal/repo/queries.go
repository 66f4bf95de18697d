package repo

const (
	qPing = `select 1`

	qListCredentials = `
SELECT c."userId", c.email, c.password
FROM oms."userStoreCred" c
JOIN oms."stores" s ON s.id = c."storeId"
WHERE s.name = $1 AND (c.status IS NULL OR c.status = 'active')
ORDER BY c."userId"`

	qGetCredential = `
SELECT c."userId", c.email, c.password
FROM oms."userStoreCred" c
JOIN oms."stores" s ON s.id = c."storeId"
WHERE s.name = $1 AND c."userId" = $2 AND (c.status IS NULL OR c.status = 'active')
LIMIT 1`
)

// Each pass owns its DO UPDATE SET list. Columns a pass does not own are
// either left out or kept with COALESCE.
const (
	qUpsertOrder = `
INSERT INTO oms."meeshoOrders" (
  "userId", "orderNumber", "subOrderNumber", "productName", "productSku", "productId",
  "variation", "quantity", "expected_dispatch_date", "slaStatus", "status", "orderedDate",
  "updatedAt"
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
ON CONFLICT ("orderNumber", "subOrderNumber") DO UPDATE SET
  "userId" = EXCLUDED."userId",
  "productName" = EXCLUDED."productName",
  "productSku" = EXCLUDED."productSku",
  "productId" = EXCLUDED."productId",
  "variation" = EXCLUDED."variation",
  "quantity" = EXCLUDED."quantity",
  "expected_dispatch_date" = EXCLUDED."expected_dispatch_date",
  "slaStatus" = EXCLUDED."slaStatus",
  "status" = EXCLUDED."status",
  "orderedDate" = EXCLUDED."orderedDate",
  "updatedAt" = NOW()
`

	qUpsertReturn = `
INSERT INTO oms."meeshoOrders" (
  "userId", "orderNumber", "subOrderNumber", "productName", "productSku", "productId",
  "variation", "quantity", "orderedDate", "status", "orderType",
  "subOrderIdentifier", "returnType", "returnSubType", "shipmentStatus",
  "expectedDeliveryDateISO", "lastAttemptedDateISO",
  "carrierName", "carrierIdentifier", "carrierAccountType", "trackingURL", "awb",
  "returnPriceType", "returnDetailedReason", "returnReason",
  "reverseOfdAttemptCountValue", "reverseOfdAttemptCountLabel", "firstAttemptedDateISO",
  "proofOfDeliveryLabel", "displayMsg", "otpVerifiedFlag", "otpVerifiedTime",
  "digitalPodURL", "digitalPodExpiryTime",
  "orderDispatchDateISO", "orderDeliveredDateISO",
  "updatedAt"
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,
  $12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,
  $26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,
  NOW()
)
ON CONFLICT ("orderNumber", "subOrderNumber") DO UPDATE SET
  "userId" = EXCLUDED."userId",
  "productName" = COALESCE(EXCLUDED."productName", "meeshoOrders"."productName"),
  "productSku" = COALESCE(EXCLUDED."productSku", "meeshoOrders"."productSku"),
  "productId" = COALESCE(EXCLUDED."productId", "meeshoOrders"."productId"),
  "variation" = COALESCE(EXCLUDED."variation", "meeshoOrders"."variation"),
  "quantity" = COALESCE(EXCLUDED."quantity", "meeshoOrders"."quantity"),
  "orderedDate" = COALESCE(EXCLUDED."orderedDate", "meeshoOrders"."orderedDate"),
  "status" = EXCLUDED."status",
  "orderType" = EXCLUDED."orderType",
  "subOrderIdentifier" = EXCLUDED."subOrderIdentifier",
  "returnType" = EXCLUDED."returnType",
  "returnSubType" = EXCLUDED."returnSubType",
  "shipmentStatus" = EXCLUDED."shipmentStatus",
  "expectedDeliveryDateISO" = EXCLUDED."expectedDeliveryDateISO",
  "lastAttemptedDateISO" = EXCLUDED."lastAttemptedDateISO",
  "carrierName" = EXCLUDED."carrierName",
  "carrierIdentifier" = EXCLUDED."carrierIdentifier",
  "carrierAccountType" = EXCLUDED."carrierAccountType",
  "trackingURL" = EXCLUDED."trackingURL",
  "awb" = EXCLUDED."awb",
  "returnPriceType" = EXCLUDED."returnPriceType",
  "returnDetailedReason" = EXCLUDED."returnDetailedReason",
  "returnReason" = EXCLUDED."returnReason",
  "reverseOfdAttemptCountValue" = EXCLUDED."reverseOfdAttemptCountValue",
  "reverseOfdAttemptCountLabel" = EXCLUDED."reverseOfdAttemptCountLabel",
  "firstAttemptedDateISO" = EXCLUDED."firstAttemptedDateISO",
  "proofOfDeliveryLabel" = EXCLUDED."proofOfDeliveryLabel",
  "displayMsg" = EXCLUDED."displayMsg",
  "otpVerifiedFlag" = EXCLUDED."otpVerifiedFlag",
  "otpVerifiedTime" = EXCLUDED."otpVerifiedTime",
  "digitalPodURL" = EXCLUDED."digitalPodURL",
  "digitalPodExpiryTime" = EXCLUDED."digitalPodExpiryTime",
  "orderDispatchDateISO" = EXCLUDED."orderDispatchDateISO",
  "orderDeliveredDateISO" = EXCLUDED."orderDeliveredDateISO",
  "updatedAt" = NOW()
`

	// status is only written when the payout creates the row.
	qUpsertPayoutOrder = `
INSERT INTO oms."meeshoOrders" (
  "userId", "orderNumber", "subOrderNumber", "productSku", "status",
  "orderDispatchDateISO", "paymentDate", "amount", "penalty", "netamount",
  "returnshippingcharge", "updatedAt"
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
ON CONFLICT ("orderNumber", "subOrderNumber") DO UPDATE SET
  "orderDispatchDateISO" = COALESCE(EXCLUDED."orderDispatchDateISO", "meeshoOrders"."orderDispatchDateISO"),
  "paymentDate" = EXCLUDED."paymentDate",
  "amount" = EXCLUDED."amount",
  "penalty" = EXCLUDED."penalty",
  "netamount" = EXCLUDED."netamount",
  "returnshippingcharge" = EXCLUDED."returnshippingcharge",
  "updatedAt" = NOW()
`

	qUpsertPayment = `
INSERT INTO oms."meeshoOrdersPayment" (
  "userId", "orderNumber", "subOrderNumber", "productSku", "status",
  "paymentDate", "amount", "penalty", "netamount", "returnshippingcharge"
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT ("orderNumber", "subOrderNumber", "paymentDate") DO UPDATE SET
  "userId" = EXCLUDED."userId",
  "productSku" = EXCLUDED."productSku",
  "status" = EXCLUDED."status",
  "amount" = EXCLUDED."amount",
  "penalty" = EXCLUDED."penalty",
  "netamount" = EXCLUDED."netamount",
  "returnshippingcharge" = EXCLUDED."returnshippingcharge"
`
)
