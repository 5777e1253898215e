package facter

// Facts read by the deploy agent. Dotted names address a nested value, facter
// answers them under the dotted key itself.
const (
	FactHostname              = "hostname"
	FactLocalIPv4             = "ec2_local_ipv4"
	FactInstanceID            = "ec2_instance_id"
	FactDeployServiceCombined = "deploy_service_combined"
	FactDeployServiceStage    = "deploy_service_stage_type"
	FactTags                  = "ec2_tags"
	FactPlacementAZ           = "ec2_placement_availability_zone"
	FactMetadataAZ            = "ec2_metadata.placement.availability-zone"
	FactIdentityCredentials   = "ec2_metadata.identity-credentials.ec2.info"
)
