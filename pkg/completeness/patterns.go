package completeness

import "strings"

// Requirement is one required component of an infrastructure pattern.
type Requirement struct {
	// Types lists accepted resource types; any of them satisfies the requirement.
	Types []string

	// Name is the component name used in messages.
	Name string

	// MinCount is the minimum number of matching resources. Zero means one.
	MinCount int
}

func (r Requirement) min() int {
	if r.MinCount < 1 {
		return 1
	}
	return r.MinCount
}

// count returns how many resources match any of the accepted types.
func (r Requirement) count(types map[string]int) int {
	n := 0
	for _, t := range r.Types {
		n += types[t]
	}
	return n
}

// Requirements is what a pattern needs on one provider.
type Requirements struct {
	Resources []Requirement

	// MinTotal is the minimum number of resource blocks for a complete result.
	MinTotal int
}

// Pattern is a recognizable kind of infrastructure.
type Pattern struct {
	Name string

	// Keywords are matched case-insensitively against the request.
	Keywords []string

	// Providers maps a cloud provider (aws, azure, gcp) to its requirements.
	Providers map[string]Requirements
}

func req(types, name string, minCount int) Requirement {
	return Requirement{Types: strings.Split(types, "|"), Name: name, MinCount: minCount}
}

// DefaultPatterns returns the built-in patterns in detection order.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:     "kubernetes",
			Keywords: []string{"kubernetes", "k8s", "eks", "aks", "gke", "cluster"},
			Providers: map[string]Requirements{
				"aws": {
					Resources: []Requirement{
						req("aws_eks_cluster", "EKS cluster", 0),
						req("aws_eks_node_group", "EKS node group", 0),
						req("aws_vpc", "VPC", 0),
						req("aws_subnet", "Subnets", 2),
						req("aws_iam_role", "IAM roles", 2),
					},
					MinTotal: 10,
				},
				"azure": {
					Resources: []Requirement{
						req("azurerm_kubernetes_cluster", "AKS cluster", 0),
						req("azurerm_resource_group", "Resource group", 0),
						req("azurerm_virtual_network", "Virtual network", 0),
					},
					MinTotal: 5,
				},
				"gcp": {
					Resources: []Requirement{
						req("google_container_cluster", "GKE cluster", 0),
						req("google_compute_network", "VPC network", 0),
						req("google_compute_subnetwork", "Subnetwork", 0),
					},
					MinTotal: 5,
				},
			},
		},
		{
			Name:     "database",
			Keywords: []string{"database", "rds", "postgres", "mysql", "mariadb", "sql"},
			Providers: map[string]Requirements{
				"aws": {
					Resources: []Requirement{
						req("aws_db_instance|aws_rds_cluster", "RDS instance", 0),
						req("aws_db_subnet_group", "DB subnet group", 0),
						req("aws_security_group", "Security group", 0),
					},
					MinTotal: 4,
				},
				"azure": {
					Resources: []Requirement{
						req("azurerm_postgresql_server|azurerm_mysql_server|azurerm_mssql_server|azurerm_postgresql_flexible_server",
							"Database server", 0),
						req("azurerm_resource_group", "Resource group", 0),
					},
					MinTotal: 3,
				},
			},
		},
		{
			Name:     "web_server",
			Keywords: []string{"web server", "nginx", "apache", "http server"},
			Providers: map[string]Requirements{
				"aws": {
					Resources: []Requirement{
						req("aws_instance", "EC2 instance", 0),
						req("aws_key_pair", "SSH key pair", 0),
						req("tls_private_key", "TLS private key", 0),
					},
					MinTotal: 3,
				},
			},
		},
		{
			Name:     "load_balancer",
			Keywords: []string{"load balancer", "alb", "nlb", "elb"},
			Providers: map[string]Requirements{
				"aws": {
					Resources: []Requirement{
						req("aws_lb|aws_alb", "Load balancer", 0),
						req("aws_lb_target_group|aws_alb_target_group", "Target group", 0),
						req("aws_lb_listener|aws_alb_listener", "Listener", 0),
						req("aws_security_group", "Security group", 0),
					},
					MinTotal: 4,
				},
			},
		},
		{
			Name:     "container",
			Keywords: []string{"ecs", "fargate", "container", "docker"},
			Providers: map[string]Requirements{
				"aws": {
					Resources: []Requirement{
						req("aws_ecs_cluster", "ECS cluster", 0),
						req("aws_ecs_task_definition", "Task definition", 0),
						req("aws_ecs_service", "ECS service", 0),
					},
					MinTotal: 5,
				},
			},
		},
	}
}

// providerPrefixes maps resource type prefixes to cloud providers.
var providerPrefixes = []struct {
	prefix   string
	provider string
}{
	{"aws_", "aws"},
	{"azurerm_", "azure"},
	{"google_", "gcp"},
}

// DetectProvider returns the cloud provider owning most of the given resource
// types, or "" when none is recognized. Ties resolve in aws, azure, gcp order.
func DetectProvider(types map[string]int) string {
	counts := make(map[string]int)
	for t, n := range types {
		for _, p := range providerPrefixes {
			if strings.HasPrefix(t, p.prefix) {
				counts[p.provider] += n
				break
			}
		}
	}

	best := ""
	for _, p := range providerPrefixes {
		if counts[p.provider] > counts[best] {
			best = p.provider
		}
	}
	return best
}
