package validation

// AcquireParams validates the fields of a lease request. preferredRegion
// and tier are optional.
func AcquireParams(requesterID, preferredRegion string) error {
	if err := RequesterID("requester_id", requesterID); err != nil {
		return err
	}
	if preferredRegion == "" {
		return nil
	}
	return RegionName("preferred_region", preferredRegion)
}
